// Package server provides the HTTP scaffolding shared by every device this
// service exposes: a router-agnostic route table keyed by method and path,
// a small set of typed JSON envelopes for scalar responses, and a Mainframe
// that mounts several such tables under one chi.Router and answers a
// route-graph query over all of them.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// StrT, FloatT, IntT, Uint32T and BoolT are single-field JSON envelopes for
// scalar HTTP responses; named with a T suffix to avoid clashing with
// builtins, the same convention the rest of this stack uses.
type StrT struct {
	Str string `json:"str"`
}

type FloatT struct {
	F64 float64 `json:"f64"`
}

type IntT struct {
	Int int `json:"int"`
}

type Uint32T struct {
	Uint uint32 `json:"uint"`
}

type BoolT struct {
	Bool bool `json:"bool"`
}

// payloadKind identifies which field of HumanPayload actually holds data.
type payloadKind int

const (
	KindBool payloadKind = iota
	KindInt
	KindFloat
	KindString
	KindUint32
)

// HumanPayload carries exactly one of several scalar types and knows how to
// encode itself as the matching single-field JSON envelope.
type HumanPayload struct {
	Kind   payloadKind
	Bool   bool
	Int    int
	Float  float64
	String string
	Uint32 uint32
}

// EncodeAndRespond writes the payload's active field to w as JSON.
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var obj interface{}
	switch hp.Kind {
	case KindBool:
		obj = BoolT{Bool: hp.Bool}
	case KindInt:
		obj = IntT{Int: hp.Int}
	case KindFloat:
		obj = FloatT{F64: hp.Float}
	case KindString:
		obj = StrT{Str: hp.String}
	case KindUint32:
		obj = Uint32T{Uint: hp.Uint32}
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		http.Error(w, fmt.Sprintf("error encoding response: %v", err), http.StatusInternalServerError)
	}
}

// MethodPath is an HTTP method and path pair, the key type for RouteTable.
type MethodPath struct {
	Method, Path string
}

func (mp MethodPath) String() string { return mp.Method + " " + mp.Path }

// RouteTable maps a method/path pair to its handler, independent of which
// router backend eventually binds it.
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists a RouteTable's entries as "METHOD path" strings, sorted.
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for mp := range rt {
		out = append(out, mp.String())
	}
	sort.Strings(out)
	return out
}

func (rt RouteTable) endpointsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(rt.Endpoints()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// Bind registers every route in the table on a chi.Router, plus a
// GET /endpoints route listing them, unless one is already present. This is
// the chi-router equivalent of the older goji-based RouteTable.Bind found
// elsewhere in this stack's history; chi has no single generic HandleFunc
// taking an arbitrary method, so this dispatches on Method explicitly.
func (rt RouteTable) Bind(r chi.Router) {
	for mp, h := range rt {
		r.MethodFunc(mp.Method, mp.Path, h)
	}
	if _, exists := rt[MethodPath{Method: http.MethodGet, Path: "/endpoints"}]; !exists {
		r.Get("/endpoints", rt.endpointsHandler())
	}
}

// node is one mounted device inside a Mainframe.
type node struct {
	stem  string
	table RouteTable
}

// Mainframe mounts several devices' route tables under one chi.Router at
// distinct URL stems, and answers a combined route-graph query, the same
// multi-device-under-one-mux role server.go's original Mainframe played for
// the goji-based stack.
type Mainframe struct {
	nodes []node
}

// Add mounts a device's route table at stem (e.g. "/ch0") on future calls to
// Bind.
func (m *Mainframe) Add(stem string, table RouteTable) {
	m.nodes = append(m.nodes, node{stem: stem, table: table})
}

// RouteGraph returns a one-level map of URL stem to that device's endpoints.
func (m *Mainframe) RouteGraph() map[string][]string {
	out := make(map[string][]string, len(m.nodes))
	for _, n := range m.nodes {
		out[n.stem] = n.table.Endpoints()
	}
	return out
}

// Bind mounts every added device under r, plus a GET /route-graph summary.
func (m *Mainframe) Bind(r chi.Router) {
	for _, n := range m.nodes {
		sub := chi.NewRouter()
		n.table.Bind(sub)
		r.Mount(n.stem, sub)
	}
	r.Get("/route-graph", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(m.RouteGraph()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
