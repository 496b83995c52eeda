// Package filetools exposes the project-scoped file tools the model can
// call: read_file, list_project_files, search_in_files, write_file_safe, and
// run_static_analysis.
//
// All paths are resolved against a Provider's project root and may never
// escape it. write_file_safe backs up the previous content before replacing
// a file and reports the backup path alongside the bytes written; every
// write lands in the audit log with the model's stated reason.
package filetools
