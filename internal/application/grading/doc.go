// Package grading implements batch grading of question items through an
// unreliable model service.
//
// Items are sent in chunks of Config.ChunkSize. Each chunk is retried for
// the items the service left out, up to Config.MaxChunkRetries calls, and
// whatever is still missing after a pass is re-chunked in the next one, up
// to Config.MaxGlobalPasses passes. Answers are joined to their items by
// question_number, preserved fields are copied back from the items, and the
// result is sorted by question number with the awarded marks summed.
//
// Items the budget could not cover are returned in Result.Leftover and
// logged; they never count towards the score.
package grading
