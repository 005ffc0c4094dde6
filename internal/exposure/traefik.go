package exposure

import (
	"fmt"
	"strconv"
)

// TraefikLabels renders a rule as container labels understood by a Traefik
// proxy watching the container engine. Path prefixes other than "/" are
// stripped before the request reaches the server.
func TraefikLabels(rule Rule) map[string]string {
	router := "traefik.http.routers." + rule.Name
	expr := fmt.Sprintf("Host(`%s`)", rule.Host)
	if rule.PathPrefix != "" && rule.PathPrefix != "/" {
		expr += fmt.Sprintf(" && PathPrefix(`%s`)", rule.PathPrefix)
	}

	l := map[string]string{"traefik.enable": "true"}
	l[router+".rule"] = expr
	l[router+".service"] = rule.Name
	l["traefik.http.services."+rule.Name+".loadbalancer.server.port"] = strconv.Itoa(rule.Port)
	if rule.PathPrefix != "" && rule.PathPrefix != "/" {
		mw := rule.Name + "-strip"
		l[router+".middlewares"] = mw
		l["traefik.http.middlewares."+mw+".stripprefix.prefixes"] = rule.PathPrefix
	}
	return l
}
