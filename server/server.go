// Package server contains misc HTTP server utilities shared by the
// instrument adapters.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"log"
	"net/http"
)

// HumanPayload is a struct that embeds data of a variable type T for
// encoding to the client.
type HumanPayload struct {
	// Bool holds a binary value
	Bool bool

	// Int holds an integer value
	Int int

	// Float holds a floating point value
	Float float64

	// String holds a text value
	String string

	// T holds the type of data actually contained in the payload
	T types.BasicKind
}

// EncodeAndRespond converts the humanpayload to a smaller struct with
// only the relevant field and writes it to w as JSON.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var obj interface{}
	switch hp.T {
	case types.Bool:
		obj = BoolT{Bool: hp.Bool}
	case types.Int:
		obj = IntT{Int: hp.Int}
	case types.Float64:
		obj = FloatT{F64: hp.Float}
	case types.String:
		obj = StrT{Str: hp.String}
	default:
		http.Error(w, fmt.Sprintf("unknown payload kind %v", hp.T), http.StatusInternalServerError)
		return
	}
	err := json.NewEncoder(w).Encode(obj)
	if err != nil {
		fstr := fmt.Sprintf("error encoding payload to json %q", err)
		log.Println(fstr)
		http.Error(w, fstr, http.StatusInternalServerError)
	}
}

// BoolT is a struct with a single field Bool for doing JSON IO
type BoolT struct {
	Bool bool `json:"bool"`
}

// IntT is a struct with a single field Int for doing JSON IO
type IntT struct {
	Int int `json:"int"`
}

// FloatT is a struct with a single field F64 for doing JSON IO
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is a struct with a single field Str for doing JSON IO
type StrT struct {
	Str string `json:"str"`
}

// RouteTable maps URL endpoints to handlers
type RouteTable map[string]http.HandlerFunc

// ListEndpoints lists the endpoints in a RouteTable (the keys)
func (rt RouteTable) ListEndpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k)
	}
	return routes
}
