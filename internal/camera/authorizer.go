package camera

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// AuthorizationStatus is the camera permission state
type AuthorizationStatus int

const (
	StatusNotDetermined AuthorizationStatus = iota
	StatusAuthorized
	StatusDenied
)

func (s AuthorizationStatus) String() string {
	switch s {
	case StatusAuthorized:
		return "authorized"
	case StatusDenied:
		return "denied"
	default:
		return "not-determined"
	}
}

// Authorizer decides whether the camera may be used
type Authorizer interface {
	Status() AuthorizationStatus
	// RequestAccess asks for permission; callback may run on any goroutine
	RequestAccess(callback func(granted bool))
}

// StaticAuthorizer always reports the same status
type StaticAuthorizer AuthorizationStatus

// Status implements Authorizer
func (a StaticAuthorizer) Status() AuthorizationStatus {
	return AuthorizationStatus(a)
}

// RequestAccess implements Authorizer
func (a StaticAuthorizer) RequestAccess(callback func(granted bool)) {
	callback(AuthorizationStatus(a) == StatusAuthorized)
}

// PromptAuthorizer asks the user on a terminal. The answer is remembered for
// the life of the authorizer.
type PromptAuthorizer struct {
	in  io.Reader
	out io.Writer

	mu     sync.Mutex
	status AuthorizationStatus
}

// NewPromptAuthorizer reads answers from in and writes the question to out
func NewPromptAuthorizer(in io.Reader, out io.Writer) *PromptAuthorizer {
	return &PromptAuthorizer{in: in, out: out}
}

// Status implements Authorizer
func (a *PromptAuthorizer) Status() AuthorizationStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// RequestAccess implements Authorizer. The prompt runs on its own goroutine.
//
// The read cannot be cancelled: if nobody answers, the goroutine stays
// blocked on in until in is closed or the process exits. Callers that give
// up waiting should close in if it is not the process stdin.
func (a *PromptAuthorizer) RequestAccess(callback func(granted bool)) {
	go func() {
		fmt.Fprint(a.out, "Allow facedetect to use the camera? [y/N] ")
		line, err := bufio.NewReader(a.in).ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		granted := (err == nil || err == io.EOF) && (answer == "y" || answer == "yes")

		a.mu.Lock()
		if granted {
			a.status = StatusAuthorized
		} else {
			a.status = StatusDenied
		}
		a.mu.Unlock()

		callback(granted)
	}()
}
