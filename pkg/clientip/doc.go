// Package clientip resolves the originating address of an inbound request
// behind the load balancers notifyd is deployed with.
package clientip
