/*
Package proxy implements a local REST API that forwards vehicle requests through one logged-in
account.

The proxy accepts the owner API's own URL scheme under /api/1/ and relays each request upstream
with the account's bearer token attached, refreshing the token as needed. Clients on the local
machine can therefore issue plain unauthenticated HTTP requests and leave credential handling to
the proxy process.

See the [Owner API documentation] for available endpoints.

[Owner API documentation]: https://tesla-api.timdorr.com/
*/
package proxy
