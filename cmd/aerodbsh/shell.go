package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aerodb/aerodb/internal/handler"
	"github.com/aerodb/aerodb/pkg/client"
)

// shell dispatches dot-commands against one embedded DB, in the spirit
// of the teacher's docdbsh Shell.Execute switch but against an
// in-process client instead of a wire connection.
type shell struct {
	db *client.DB
}

func newShell(db *client.DB) *shell {
	return &shell{db: db}
}

// execute runs one line of input and returns true if the shell should
// exit.
func (s *shell) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]

	switch name {
	case ".help":
		s.help()
	case ".exit", ".quit":
		return true
	case ".insert":
		s.insertOrUpdate("insert", args, line)
	case ".update":
		s.insertOrUpdate("update", args, line)
	case ".delete":
		s.delete(args)
	case ".query":
		s.queryOrExplain("query", args, line)
	case ".explain":
		s.queryOrExplain("explain", args, line)
	default:
		fmt.Printf("unknown command: %s (try .help)\n", name)
	}
	return false
}

func (s *shell) help() {
	fmt.Println(`commands:
  .insert  <schema_id> <schema_version> <json-document>
  .update  <schema_id> <schema_version> <json-document>
  .delete  <schema_id> <document_id>
  .query   <schema_id> <schema_version> <limit> <json-filter>
  .explain <schema_id> <schema_version> <limit> <json-filter>
  .exit

json-filter is the wire filter object, e.g. {"age":{"$gte":18}}`)
}

// insertOrUpdate parses "<schema_id> <schema_version> <json-document...>"
// out of args/line. The document may itself contain spaces, so it is
// re-sliced out of the original line rather than re-joined from fields.
func (s *shell) insertOrUpdate(op string, args []string, line string) {
	if len(args) < 3 {
		fmt.Printf("usage: .%s <schema_id> <schema_version> <json-document>\n", op)
		return
	}
	schemaID, schemaVersion := args[0], args[1]
	docJSON := documentTail(line, 3)

	var probe interface{}
	if err := json.Unmarshal([]byte(docJSON), &probe); err != nil {
		fmt.Printf("invalid document JSON: %v\n", err)
		return
	}

	var resp handler.Response
	var err error
	if op == "insert" {
		resp, err = s.db.Insert(schemaID, schemaVersion, probe)
	} else {
		resp, err = s.db.Update(schemaID, schemaVersion, probe)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printResponse(resp)
}

func (s *shell) delete(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: .delete <schema_id> <document_id>")
		return
	}
	printResponse(s.db.Delete(args[0], args[1]))
}

func (s *shell) queryOrExplain(op string, args []string, line string) {
	if len(args) < 4 {
		fmt.Printf("usage: .%s <schema_id> <schema_version> <limit> <json-filter>\n", op)
		return
	}
	schemaID, schemaVersion := args[0], args[1]
	limit, err := strconv.Atoi(args[2])
	if err != nil {
		fmt.Printf("invalid limit: %v\n", err)
		return
	}
	filterJSON := documentTail(line, 4)

	var rawFilter map[string]map[string]json.RawMessage
	if err := json.Unmarshal([]byte(filterJSON), &rawFilter); err != nil {
		fmt.Printf("invalid filter JSON: %v\n", err)
		return
	}

	env := &handler.Envelope{
		Op:            op,
		SchemaID:      schemaID,
		SchemaVersion: schemaVersion,
		Filter:        rawFilter,
		Limit:         &limit,
	}
	printResponse(s.db.Raw(env))
}

// documentTail returns the substring of line starting at the nth
// whitespace-separated field, preserving internal whitespace (JSON
// payloads are not re-tokenized by strings.Fields).
func documentTail(line string, n int) string {
	rest := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) < 2 {
			return ""
		}
		rest = strings.TrimSpace(parts[1])
	}
	return rest
}

func printResponse(resp handler.Response) {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
