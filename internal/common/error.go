package common

import "fmt"

var (
	ErrFileNotFound                     = fmt.Errorf("file not found")
	ErrNoFilesResolved                  = fmt.Errorf("none of the requested files were found")
	ErrInvalidRequest                   = fmt.Errorf("invalid request")
	ErrInvalidFileName                  = fmt.Errorf("invalid file name")
	ErrConnection                       = fmt.Errorf("cannot connect to server")
	ErrConfig                           = fmt.Errorf("invalid config")
	ErrStatsDisabled                    = fmt.Errorf("download statistics are disabled")
	ErrIndexingProcessHasAlreadyStarted = fmt.Errorf("indexing process has already started")
)
