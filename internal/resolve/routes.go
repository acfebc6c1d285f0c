package resolve

import (
	"net/http"

	"github.com/aukc1970/formwork/internal/router"
)

// DefaultPatterns are the page routes, most specific first.
var DefaultPatterns = []string{
	"/",
	"/page/{paginationPage:num}/",
	"/{page:all}/tag/{tagName:aln}/page/{paginationPage:num}/",
	"/{page:all}/tag/{tagName:aln}/",
	"/{page:all}/page/{paginationPage:num}/",
	"/{page:all}/",
}

// Register adds the default page routes to rt, served by res for GET and
// HEAD over both transports.
func Register(rt *router.Router[*Result], res *Resolver) error {
	return rt.Add(
		[]router.Transport{router.TransportHTTP, router.TransportXHR},
		[]string{http.MethodGet},
		DefaultPatterns,
		res.Handler(),
	)
}
