// Package service contains the application use cases of the file pipeline.
//
// IngestionService accepts uploads: it validates every part, measures or
// splits the input, and creates each file record together with the jobs
// that store and convert it, inside one session per uploaded file so that
// no job can reference an uncommitted record.
//
// QueryService is the read side. It returns records (PDF parents with
// their pages) and statuses, consulting an optional status cache first.
//
// The package depends on store and task interfaces, never on a specific
// database or queue implementation.
package service
