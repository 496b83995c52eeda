// Package scanner provides the built-in static checks behind the
// run_static_analysis tool.
//
// A Scanner walks the project root and reports Issues. The built-in set
// flags unresolved merge conflict markers, TODO and FIXME annotations, and
// oversized source files or lines. RunAll runs every registered scanner and
// merges their findings.
package scanner
