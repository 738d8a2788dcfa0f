package models

import "fmt"

// ConfigError reports an invalid setting. It is always fatal and is detected
// before any object is fetched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// SourceDataError reports malformed input from an object source. Fragment
// holds the offending piece of data so the operator can locate it.
type SourceDataError struct {
	Unit     string
	Kind     Kind
	Fragment string
	Err      error
}

func (e *SourceDataError) Error() string {
	msg := "malformed source data"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	loc := e.Unit
	if e.Kind != "" {
		loc = fmt.Sprintf("%s/%s", e.Unit, e.Kind)
	}
	if e.Fragment == "" {
		return fmt.Sprintf("source %s: %s", loc, msg)
	}
	return fmt.Sprintf("source %s: %s: %s", loc, msg, e.Fragment)
}

func (e *SourceDataError) Unwrap() error { return e.Err }

// StepError reports a rejected remote create or delete. It never aborts a
// run; step errors are collected and summarized at the end.
type StepError struct {
	Op      string
	Kind    Kind
	Name    string
	Unit    string
	Code    string
	Message string
}

func (e *StepError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s '%s' in %s: code %s: %s", e.Op, e.Kind, e.Name, e.Unit, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s '%s' in %s: %s", e.Op, e.Kind, e.Name, e.Unit, e.Message)
}
