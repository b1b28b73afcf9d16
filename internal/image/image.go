package image

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/David-Antunes/klonet/api"
	"github.com/David-Antunes/klonet/internal/backend"
)

var imageLog = logrus.WithField("component", "image")

type Manager struct {
	client *backend.Client
	user   string
	// Quiet turns off logging of the fetched image names.
	Quiet bool
}

func NewManager(client *backend.Client, user string) *Manager {
	return &Manager{client: client, user: user}
}

// ListImages returns the images of the user keyed by subtype, the name the
// platform shows to users.
func (m *Manager) ListImages(ctx context.Context) (map[string]api.Image, error) {
	var raw map[string]json.RawMessage
	err := m.client.Do(ctx, backend.Call{
		Method:           http.MethodGet,
		Path:             "/my/image/",
		Query:            url.Values{"username": []string{m.user}},
		AllowMissingCode: true,
	}, &raw)
	if err != nil {
		return nil, err
	}

	images := make(map[string]api.Image)
	for registry, value := range raw {
		if registry == "code" || registry == "msg" {
			continue
		}
		var byType map[string][]api.Image
		if err := json.Unmarshal(value, &byType); err != nil {
			return nil, &api.JsonDecodeError{Status: http.StatusOK, Body: string(value), Err: err}
		}
		for _, list := range byType {
			for _, img := range list {
				images[img.Subtype] = img
			}
		}
	}

	if !m.Quiet {
		imageLog.Infof("%s has these images: %v", m.user, Names(images))
	}
	return images, nil
}

// Names returns the sorted keys of an image map.
func Names(images map[string]api.Image) []string {
	names := make([]string, 0, len(images))
	for name := range images {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
