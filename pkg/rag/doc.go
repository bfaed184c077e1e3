// Package rag implements the query handler: it embeds the user's question,
// looks up related craftsman documents and hands the assembled prompt to the
// chat engine.
package rag
