package browser

import (
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// ResponseCapture collects response bodies for urls containing a
// substring. Panels answer renew clicks with ajax, the page itself never
// shows the outcome.
type ResponseCapture struct {
	urlSubstring string
	methods      []string

	mu     sync.Mutex
	bodies []CapturedResponse
}

type CapturedResponse struct {
	Url    string
	Method string
	Status int
	Body   string
}

// CaptureResponses starts recording matching responses on the session's
// page. Methods restricts which request methods are recorded, none means
// any; a page read against the same url during render would otherwise be
// mistaken for the submit's answer. Registration lasts for the lifetime
// of the page.
func (s *Session) CaptureResponses(urlSubstring string, methods ...string) *ResponseCapture {
	capture := &ResponseCapture{urlSubstring: urlSubstring, methods: methods}
	s.Page.OnResponse(func(res playwright.Response) {
		method := res.Request().Method()
		if !capture.wants(method, res.URL()) {
			return
		}
		body, err := res.Text()
		if err != nil {
			return
		}
		capture.mu.Lock()
		capture.bodies = append(capture.bodies, CapturedResponse{
			Url:    res.URL(),
			Method: method,
			Status: res.Status(),
			Body:   body,
		})
		capture.mu.Unlock()
	})
	return capture
}

func (c *ResponseCapture) wants(method, url string) bool {
	if !strings.Contains(url, c.urlSubstring) {
		return false
	}
	if len(c.methods) == 0 {
		return true
	}
	for _, m := range c.methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Responses returns everything captured so far, oldest first.
func (c *ResponseCapture) Responses() []CapturedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedResponse, len(c.bodies))
	copy(out, c.bodies)
	return out
}

// Last returns the most recent captured response, or false when nothing
// matched yet.
func (c *ResponseCapture) Last() (CapturedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return CapturedResponse{}, false
	}
	return c.bodies[len(c.bodies)-1], true
}
