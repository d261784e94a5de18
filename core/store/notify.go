package store

// Notifier shows user-facing messages, like the dashboard toasts.
type Notifier interface {
	Success(msg string)
	Error(err error)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Error(error)    {}
