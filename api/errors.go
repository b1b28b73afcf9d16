package api

import (
	"fmt"
	"strings"
)

const (
	KindNode    = "node"
	KindLink    = "link"
	KindImage   = "image"
	KindProject = "project"
)

type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// HttpStatusError is returned when the backend answers with a status other than 200.
type HttpStatusError struct {
	Status int
	Body   string
}

func (e *HttpStatusError) Error() string {
	return fmt.Sprintf("HTTP status code is not 200: status=%d body=%q", e.Status, e.Body)
}

type JsonDecodeError struct {
	Status int
	Body   string
	Err    error
}

func (e *JsonDecodeError) Error() string {
	return fmt.Sprintf("response does not contain valid json: status=%d body=%q: %v", e.Status, e.Body, e.Err)
}

func (e *JsonDecodeError) Unwrap() error {
	return e.Err
}

// BackendExecutionError is an application failure reported inside a valid
// envelope. Code is nil when the envelope carried no code at all.
type BackendExecutionError struct {
	Code *int
	Msg  string
}

func (e *BackendExecutionError) Error() string {
	if e.Code == nil {
		return fmt.Sprintf("backend returned no code, msg: %s", e.Msg)
	}
	return fmt.Sprintf("backend returned code=%d, msg: %s", *e.Code, e.Msg)
}

type DuplicateNameError struct {
	Kind     string
	Name     string
	Existing []string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s name [%s] is duplicate, existing %s names are [%s]",
		e.Kind, e.Name, e.Kind, strings.Join(e.Existing, ", "))
}

type ParallelLinkError struct {
	Link           string
	Source         string
	Target         string
	Existing       string
	ExistingSource string
	ExistingTarget string
}

func (e *ParallelLinkError) Error() string {
	return fmt.Sprintf("new link %s(%s---%s) repeats existing link %s(%s---%s)",
		e.Link, e.Source, e.Target, e.Existing, e.ExistingSource, e.ExistingTarget)
}

type SelfLinkError struct {
	Node string
}

func (e *SelfLinkError) Error() string {
	return fmt.Sprintf("node %s cannot connect to itself", e.Node)
}

// ConsistencyError reports two values that must agree but do not.
type ConsistencyError struct {
	Subject  string
	Expected string
	Actual   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s is inconsistent: expected %s, got %s", e.Subject, e.Expected, e.Actual)
}

type NotFoundError struct {
	Kind      string
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s [%s] does not exist, available %ss are [%s]",
		e.Kind, e.Name, e.Kind, strings.Join(e.Available, ", "))
}

type InvalidAddressError struct {
	Address string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("address [%s] is not a valid IPv4 CIDR", e.Address)
}

type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported node type [%s]", e.Type)
}
