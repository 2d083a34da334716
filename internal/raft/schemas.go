package raft

import (
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/raftkit/raftd/internal/rpc"
)

// Inline JSON Schemas for the two wire RPCs, compiled once at package init
// and attached to their handlers via rpc.WithSchema so malformed params are
// rejected by the runtime before ever reaching handleRequestVote/handleAppendEntries.
const requestVoteSchemaDoc = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["term", "candidate_id", "last_log_index", "last_log_term"],
	"properties": {
		"term": {"type": "integer", "minimum": 0},
		"candidate_id": {"type": "string", "minLength": 1},
		"last_log_index": {"type": "integer", "minimum": 0},
		"last_log_term": {"type": "integer", "minimum": 0}
	}
}`

const appendEntriesSchemaDoc = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["term", "leader_id", "prev_log_index", "prev_log_term", "leader_commit"],
	"properties": {
		"term": {"type": "integer", "minimum": 0},
		"leader_id": {"type": "string", "minLength": 1},
		"prev_log_index": {"type": "integer", "minimum": 0},
		"prev_log_term": {"type": "integer", "minimum": 0},
		"entries": {"type": ["array", "null"]},
		"leader_commit": {"type": "integer", "minimum": 0}
	}
}`

var requestVoteSchema = mustCompileSchema("raftd://schema/request-vote.json", requestVoteSchemaDoc)
var appendEntriesSchema = mustCompileSchema("raftd://schema/append-entries.json", appendEntriesSchemaDoc)

func mustCompileSchema(name, doc string) *jsonschema.Schema {
	s, err := rpc.CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}
