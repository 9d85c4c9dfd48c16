package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-yaml/yaml"

	"github.com/sigrokproject/goacq/acqhttp"
	"github.com/sigrokproject/goacq/comm"
	"github.com/sigrokproject/goacq/drivers"
)

// ObjSetup holds the typical triplet of args for setting up one
// instrument node.
type ObjSetup struct {
	// Addr holds the filesystem address of the device,
	// e.g. /dev/ttyUSB0 for an RS232 device on a serial cable
	Addr string `yaml:"Addr"`

	// Endpoint is the path the routes from this device will be served
	// on, ex. Endpoint="/lab/slm" produces routes of /lab/slm/start, etc.
	Endpoint string `yaml:"Endpoint"`

	// Type is the driver name, e.g. mastech-ms6514; see the drivers
	// package registry for the full list
	Type string `yaml:"Type"`

	// Mock replaces the device with a loopback that answers every
	// request with silence, for bringing up a deployment without
	// hardware attached
	Mock bool `yaml:"Mock"`
}

// Config holds the initialization parameters for the served devices.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr"`

	// Nodes is the list of nodes to set up
	Nodes []ObjSetup `yaml:"Nodes"`
}

// LoadYaml converts a (path to a) yaml file into a Config struct
func LoadYaml(path string) (Config, error) {
	cfg := Config{}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&cfg)
	return cfg, err
}

// BuildMux constructs a chi mux with one subrouter per configured
// node.  The mux serves a special route, route-graph, which returns a
// map of endpoint to its routes as JSON.
func BuildMux(c Config) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	for _, node := range c.Nodes {
		drv, ok := drivers.Lookup(strings.ToLower(node.Type))
		if !ok {
			log.Fatalf("unknown device type %s; known types: %v",
				node.Type, drivers.Names())
		}

		var a *acqhttp.Adapter
		if node.Mock {
			a = acqhttp.NewAdapterWithMaker(drv, func() (comm.Transport, error) {
				return comm.NewLoopback(), nil
			})
		} else {
			a = acqhttp.NewAdapter(drv, node.Addr)
		}

		stem := sanitize(node.Endpoint)
		root.Route(stem, a.Routes)
		supergraph[stem] = []string{
			"start", "stop", "running", "last",
			"sample-count", "meta", "lock",
			"limits/samples", "limits/msec",
		}
	}

	root.Get("/route-graph", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(supergraph); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return root
}

// sanitize ensures an endpoint has a leading slash and no trailing
// one.
func sanitize(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}
