package errors

// NewInternalError creates a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr creates a new ErrInternal error with the given
// message and original error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError creates a new ErrAborted error for the operation that
// was interrupted.
func NewContextAbortedError(operation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: operation,
	}
}

// NewQueryToSQLError creates a new ErrInternal error for query building
// failures.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError creates a new ErrInternal error for failed query
// execution with the query in the details.
func NewExecQueryError(err error, query string, details Details) error {
	if details == nil {
		details = make(Details)
	}
	details["query"] = query
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "exec query",
		Details: details,
	}
}

// NewScanDBRowError creates a new ErrInternal error for row scan failures
// with the query in the details.
func NewScanDBRowError(err error, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "scan db row",
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError creates a new ErrInternal error for failures while
// beginning a transaction.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError creates a new ErrInternal error for failures while
// committing a transaction.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
