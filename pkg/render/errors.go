package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// fallbackErrorBody is served when every error page is itself unavailable.
const fallbackErrorBody = "Internal Server Error"

// ErrorPresenter renders error responses through the page pipeline, so
// custom 404 and 500 pages get the same caching and data-request treatment
// as any other page.
type ErrorPresenter struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewErrorPresenter builds a presenter over a dispatcher.
func NewErrorPresenter(d *Dispatcher, logger *slog.Logger) *ErrorPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorPresenter{dispatcher: d, logger: logger}
}

// RenderError produces the response payload for a status code. Candidate
// pages are tried in order: the dedicated 404 page, a static page named
// after the status, then the generic error page. When all fail, a minimal
// hardcoded body is returned so the client always gets a response.
func (p *ErrorPresenter) RenderError(ctx context.Context, req *Request, status int, cause error) *Payload {
	if cause != nil && status >= http.StatusInternalServerError {
		var buildErr *WrappedBuildError
		if errors.As(cause, &buildErr) {
			// Build errors were already reported at build time.
		} else {
			p.logger.Error("request failed",
				"path", req.Pathname,
				"status", status,
				"error", cause)
		}
	}

	for _, page := range p.errorPages(status) {
		payload, err := p.renderErrorPage(ctx, req, page, status)
		if err != nil {
			if err == ErrPageNotFound {
				continue
			}
			p.logger.Error("error page failed", "page", page, "error", err)
			continue
		}
		return payload
	}

	return &Payload{
		Kind:       PayloadHTML,
		Body:       []byte(fallbackErrorBody),
		StatusCode: status,
		NoCache:    true,
	}
}

// errorPages lists candidate pages for a status, most specific first.
func (p *ErrorPresenter) errorPages(status int) []string {
	var pages []string
	if status == http.StatusNotFound {
		pages = append(pages, "/404")
	}
	statusPage := fmt.Sprintf("/%d", status)
	if statusPage != "/404" && p.dispatcher.HasExactPage(statusPage) {
		pages = append(pages, statusPage)
	}
	pages = append(pages, "/_error")
	return pages
}

// renderErrorPage renders one error page candidate with the status forced
// onto the payload.
func (p *ErrorPresenter) renderErrorPage(ctx context.Context, req *Request, page string, status int) (*Payload, error) {
	errReq := &Request{
		HTTP:          req.HTTP,
		Pathname:      page,
		Query:         url.Values{},
		Locale:        req.Locale,
		IsDataRequest: req.IsDataRequest,
		Preview:       req.Preview,
	}
	payload, err := p.dispatcher.RenderPage(ctx, errReq)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, ErrPageNotFound
	}
	payload.StatusCode = status
	// Error responses are never cacheable downstream.
	payload.NoCache = true
	return payload, nil
}
