// Package piece defines the contract between the flow builder and connector
// modules ("pieces").
//
// A piece exposes typed actions and polling triggers for one external
// service. Each action or trigger declares its configurable inputs as a
// PropertyMap: an insertion-ordered set of property descriptors. Static
// properties resolve to form defaults immediately; dynamic properties
// (dropdowns and groups whose options depend on other property values)
// resolve through a network fetch driven by their declared refreshers.
//
// The resolver subpackage turns PropertyMaps into concrete form state, and
// the polling subpackage provides cursor-based deduplication for polling
// triggers.
package piece
