package perception

import (
	"fmt"
	"math"
)

// Check reports whether a face is usable by the extractor. A face must carry
// either landmarks including the nose tip, or expression data, and every
// coordinate and intensity must be finite.
func Check(f *Face) error {
	if f == nil {
		return nil
	}
	for role, p := range f.Landmarks {
		if !p.Valid() {
			return fmt.Errorf("%w: non-finite %s", ErrMalformed, role)
		}
	}
	for name, v := range f.Expressions {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite expression %s", ErrMalformed, name)
		}
	}
	if len(f.Landmarks) > 0 {
		if _, ok := f.Landmarks[NoseTip]; !ok {
			return fmt.Errorf("%w: missing %s", ErrMalformed, NoseTip)
		}
		return nil
	}
	if len(f.Expressions) == 0 {
		return fmt.Errorf("%w: face has neither landmarks nor expressions", ErrMalformed)
	}
	return nil
}
