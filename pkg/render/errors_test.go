package render

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestRenderErrorCustom404(t *testing.T) {
	set := writeManifests(t, map[string]string{
		"/404":    "pages/404.html",
		"/_error": "pages/_error.js",
	}, nil)
	loader := &fakeLoader{bundles: map[string]*PageBundle{
		"/404":    {Page: "/404", StaticHTML: []byte("<html>not here</html>")},
		"/_error": {Page: "/_error"},
	}}
	d := newTestDispatcher(t, set, loader, &fakeRenderer{}, Options{})
	presenter := NewErrorPresenter(d, testLogger())

	payload := presenter.RenderError(context.Background(), htmlRequest("/missing"), http.StatusNotFound, nil)
	if payload.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", payload.StatusCode)
	}
	if string(payload.Body) != "<html>not here</html>" {
		t.Errorf("body = %q, want custom 404 page", payload.Body)
	}
	if !payload.NoCache {
		t.Error("error payload is cacheable")
	}
}

func TestRenderErrorStatusPage(t *testing.T) {
	set := writeManifests(t, map[string]string{
		"/500":    "pages/500.html",
		"/_error": "pages/_error.js",
	}, nil)
	loader := &fakeLoader{bundles: map[string]*PageBundle{
		"/500":    {Page: "/500", StaticHTML: []byte("<html>boom</html>")},
		"/_error": {Page: "/_error"},
	}}
	d := newTestDispatcher(t, set, loader, &fakeRenderer{}, Options{})
	presenter := NewErrorPresenter(d, testLogger())

	payload := presenter.RenderError(context.Background(), htmlRequest("/x"), http.StatusInternalServerError, errors.New("render exploded"))
	if payload.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", payload.StatusCode)
	}
	if string(payload.Body) != "<html>boom</html>" {
		t.Errorf("body = %q, want status page", payload.Body)
	}
}

func TestRenderErrorFallsBackToGenericPage(t *testing.T) {
	set := writeManifests(t, map[string]string{"/_error": "pages/_error.js"}, nil)
	loader := &fakeLoader{bundles: map[string]*PageBundle{
		"/_error": {Page: "/_error", StaticHTML: []byte("<html>error</html>")},
	}}
	d := newTestDispatcher(t, set, loader, &fakeRenderer{}, Options{})
	presenter := NewErrorPresenter(d, testLogger())

	payload := presenter.RenderError(context.Background(), htmlRequest("/missing"), http.StatusNotFound, nil)
	if string(payload.Body) != "<html>error</html>" {
		t.Errorf("body = %q, want generic error page", payload.Body)
	}
	if payload.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", payload.StatusCode)
	}
}

func TestRenderErrorHardcodedDegrade(t *testing.T) {
	set := writeManifests(t, map[string]string{}, nil)
	d := newTestDispatcher(t, set, &fakeLoader{}, &fakeRenderer{}, Options{})
	presenter := NewErrorPresenter(d, testLogger())

	payload := presenter.RenderError(context.Background(), htmlRequest("/x"), http.StatusInternalServerError, errors.New("everything broke"))
	if string(payload.Body) != fallbackErrorBody {
		t.Errorf("body = %q, want hardcoded fallback", payload.Body)
	}
	if payload.StatusCode != http.StatusInternalServerError || !payload.NoCache {
		t.Errorf("payload = (%d, noCache=%v)", payload.StatusCode, payload.NoCache)
	}
}
