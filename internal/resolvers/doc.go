// Package resolvers holds the built-in task resolvers.
//
// Every resolver takes its collaborators from Deps and is registered by
// NewRegistry under the name a workflow definition refers to:
//
//	Asset      asset ids and URLs to local files
//	PDF        text of PDF files
//	Web        text of a web page
//	Chat       one JSON completion from the prompt fields
//	ChatBatch  chunked grading of batch.questions
//	Vision     completion with files attached
//	Rest       one HTTP call
//	Set        constants
//	Print      log line and invocation counter
package resolvers
