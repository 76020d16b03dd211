package shell

import (
	stderrors "errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/errors"
	"github.com/hpungsan/quill/internal/save"
)

// Status is the one-line result of the last shell operation.
type Status struct {
	Op      string           `json:"op"`
	OK      bool             `json:"ok"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
}

func (s Status) String() string {
	if s.OK {
		return s.Message
	}
	if s.Code == "" {
		return fmt.Sprintf("%s failed: %s", s.Op, s.Message)
	}
	return fmt.Sprintf("%s failed (%s): %s", s.Op, s.Code, s.Message)
}

// StatusOf describes err as a failed op.
func StatusOf(op string, err error) Status {
	msg := err.Error()
	var qe *errors.QuillError
	if stderrors.As(err, &qe) {
		msg = qe.Message
	}
	return Status{Op: op, Code: errors.CodeOf(err), Message: msg}
}

// Status returns the status of the last operation.
func (s *Shell) Status() Status {
	s.smu.Lock()
	defer s.smu.Unlock()
	return s.status
}

func (s *Shell) setStatus(st Status) {
	s.smu.Lock()
	s.status = st
	s.smu.Unlock()
}

// report records the outcome of op and returns err unchanged.
func (s *Shell) report(op string, err error, okMessage string) error {
	if err == nil {
		s.setStatus(Status{Op: op, OK: true, Message: okMessage})
		return nil
	}

	st := StatusOf(op, err)
	s.setStatus(st)
	entry := s.log.WithError(err).WithField("op", op)
	if st.Code == errors.ErrCanceled {
		entry.Debug("operation canceled")
	} else {
		entry.Warn("operation failed")
	}
	return err
}

// reportOutcome records a save outcome as the status line.
func (s *Shell) reportOutcome(op string, out save.Outcome) save.Outcome {
	st := Status{Op: op, OK: out.OK(), Message: out.Message}
	switch out.Status {
	case save.StatusCanceled:
		st.Code = errors.ErrCanceled
	case save.StatusNeedsPermission:
		st.Code = errors.ErrNeedsPermission
	case save.StatusFailed:
		st.Code = errors.ErrInternal
	case save.StatusSkipped:
		st.OK = true
	}
	s.setStatus(st)
	if !st.OK && out.Status != save.StatusCanceled {
		s.log.WithFields(logrus.Fields{"op": op, "doc_id": out.DocumentID, "status": out.Status}).Warn(out.Message)
	}
	return out
}
