package elasticsearch

import "net/http"

const productHeader = "X-Elastic-Product"

// productHeaderTransport marks responses of clusters that predate the
// product header as Elasticsearch, so the client's product check passes
type productHeaderTransport struct {
	next http.RoundTripper
}

func (t *productHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if res.Header == nil {
		res.Header = make(http.Header)
	}
	if res.Header.Get(productHeader) == "" {
		res.Header.Set(productHeader, "Elasticsearch")
	}
	return res, nil
}
