// Package logs tails line-oriented log files for the LogTail RPC.
//
// A negative offset asks for the last Limit lines; a non-negative offset
// continues from a previous read. Follow mode polls for new lines until the
// wait elapses or the context ends. Log files on usercode drives are
// truncated at every execution, so an offset past the end restarts from the
// current end of file.
package logs
