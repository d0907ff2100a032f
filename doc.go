// Package auth implements an OAuth2/OpenID Connect token service for the
// resource owner password grant.
//
// Token issuance:
//   - TokenIssuer drives a password grant from StateReceivedRequest to
//     StatePrincipalIssued or StateRejected. Every rejection carries an OAuth2 error code and a stable
//     description, see GrantError.
//   - CredentialValidator checks the account against a CredentialStore and
//     maintains the lockout counter. The failure that reaches the policy
//     threshold locks the account and resets the counter.
//   - BuildClaims and BuildPrincipal attach destinations to every claim so
//     TokenServiceImpl knows which claims belong in the access token and
//     which in the identity token.
//
// Accounts:
//   - Users is the bun backed store for accounts, roles and lockout state.
//     Usernames, emails and role names are unique by NormalizeKey.
//   - RegistrationService rejects taken usernames and emails with fixed
//     messages, UserDirectory lists accounts with their roles.
//   - UserInfoCache serves userinfo snapshots from a CacheStore keyed by
//     UserInfoKey for DefaultUserInfoTTL.
//
// Clients:
//   - ClientRegistry creates, deletes and authenticates OAuth clients and
//     bootstraps the default client at startup.
//
// Activity sinks:
//   - ActivitySink receives grant, registration and client events. Sinks
//     run best-effort (errors are logged) so you can forward to a database
//     or queue without blocking token issuance.
package auth
