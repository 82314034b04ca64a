// Command shuttlestub is a local stand-in for the shuttle backend. It
// serves the REST contract the client probes, with flags to switch
// endpoint groups off so the client's fallback chains can be walked
// end to end without the production server.
package main

import (
	"flag"
	"log"
	"net/http"
	"strings"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	secret := flag.String("secret", "dev-secret", "HS256 signing secret")
	disable := flag.String("disable", "", "comma-separated endpoint groups to 404 "+
		"(signin-role, token-role, users, students, profile-shuttle, assigned-shuttle, "+
		"drivers, driver-embedded-shuttle, parents, operators, shuttles, eta, messages)")
	flag.Parse()

	srv := newServer(defaultWorld(), *secret, strings.Split(*disable, ","))

	log.Printf("shuttlestub listening on %s (api base http://localhost%s/api)", *addr, *addr)
	if err := http.ListenAndServe(*addr, srv.router()); err != nil {
		log.Fatal(err)
	}
}
