// Package blazeorm holds the error taxonomy and collaborator contracts shared
// by the relational-mapping engine.
//
// Entities are described once in a schema.Registry. Queries are built with
// package query and compiled per dialect.Dialect. A session.Session executes
// them through a dialect.Adapter, keeps one instance per primary key, tracks
// pending writes and loads relations either by join or by one batch query per
// relation level.
package blazeorm
