// Package services holds both sides of request/response: the calls this process is waiting on
// and the services it answers for.
package services
