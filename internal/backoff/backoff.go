package backoff

import "time"

const (
	DefaultBase = 2
	DefaultCap  = 60 * time.Second
)

// Policy computes deterministic retry delays: min(Cap, Base^attempt seconds).
type Policy struct {
	Base int
	Cap  time.Duration
}

func Default() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap}
}

// Delay returns the wait before retrying a job whose pre-increment attempt
// count is attempt. Negative attempts are treated as zero.
func (p Policy) Delay(attempt int) time.Duration {
	base := p.Base
	if base < 1 {
		base = DefaultBase
	}
	ceiling := p.Cap
	if ceiling <= 0 {
		ceiling = DefaultCap
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := time.Second
	for i := 0; i < attempt; i++ {
		if delay >= ceiling {
			break
		}
		delay *= time.Duration(base)
	}

	if delay > ceiling {
		delay = ceiling
	}
	return delay
}
