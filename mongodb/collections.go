package mongodb

const (
	UsersCollection   = "fence_users"
	ClientsCollection = "oauth_clients"
	CodesCollection   = "oauth_auth_codes"
)
