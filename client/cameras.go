package main

import (
	"sort"
	"sync"
	"time"

	"camstream/internal/discovery"
)

// cameraEntry is a camera the viewer can show.
type cameraEntry struct {
	Name     string    `json:"name"`
	URL      string    `json:"url"`
	Base     string    `json:"base"`
	LastSeen time.Time `json:"last_seen"`
	Static   bool      `json:"static"`
}

// cameraList remembers cameras seen over mDNS or given on the command line.
type cameraList struct {
	mu      sync.RWMutex
	ttl     time.Duration
	cameras map[string]cameraEntry
}

func newCameraList(ttl time.Duration) *cameraList {
	return &cameraList{ttl: ttl, cameras: make(map[string]cameraEntry)}
}

// addStatic registers a camera that never expires.
func (l *cameraList) addStatic(name, base string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cameras[name] = cameraEntry{Name: name, Base: base, URL: base + "/stream", LastSeen: time.Now(), Static: true}
}

// seen records a discovered camera and reports whether it is new.
func (l *cameraList) seen(cam *discovery.CameraInfo, now time.Time) bool {
	url := cam.StreamURL()
	base := url[:len(url)-len(pathOf(cam))]

	l.mu.Lock()
	defer l.mu.Unlock()
	_, known := l.cameras[cam.Name]
	l.cameras[cam.Name] = cameraEntry{Name: cam.Name, URL: url, Base: base, LastSeen: now}
	return !known
}

func pathOf(cam *discovery.CameraInfo) string {
	if cam.Path == "" {
		return "/stream"
	}
	return cam.Path
}

// list returns live cameras sorted by name, dropping discovered ones not
// seen within the ttl.
func (l *cameraList) list(now time.Time) []cameraEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]cameraEntry, 0, len(l.cameras))
	for name, c := range l.cameras {
		if !c.Static && l.ttl > 0 && now.Sub(c.LastSeen) > l.ttl {
			delete(l.cameras, name)
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
