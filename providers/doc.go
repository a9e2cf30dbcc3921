// Package providers contains the built-in connection factories and the
// profile sync that refreshes display fields from provider userinfo APIs.
package providers
