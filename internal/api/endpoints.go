package api

// JSON API endpoints
const (
	UsersSignup              = "/users/signup"
	UsersLogin               = "/users/login"
	UsersLogout              = "/users/logout"
	UsersMe                  = "/users/me"
	UsersVerifyEmail         = "/users/verifyemail"
	UsersRequestVerification = "/users/verification"
	UsersForgotPassword      = "/users/forgotpassword"
	UsersResetPassword       = "/users/resetpassword"

	MailJob = "/mail/jobs/{id}"

	Health = "/healthz"
)

// Page routes
const (
	PageHome          = "/"
	PageLogin         = "/login"
	PageSignup        = "/signup"
	PageProfile       = "/profile"
	PageVerifyEmail   = "/verifyemail"
	PageResetPassword = "/resetpassword"
)

// PublicPages are the pages that signed-in users are redirected away from
var PublicPages = map[string]bool{
	PageHome:   true,
	PageLogin:  true,
	PageSignup: true,
}

// GuardedPages are served behind the route guard
var GuardedPages = []string{
	PageHome,
	PageLogin,
	PageSignup,
	PageProfile,
}

// OpenPages are reached from email links and skip the route guard
var OpenPages = []string{
	PageVerifyEmail,
	PageResetPassword,
}
