package attnembed

import (
	"github.com/7blacky7/attndistill/distill/config"
	"github.com/7blacky7/attndistill/ml"
	"github.com/7blacky7/attndistill/types/errtypes"
)

// resample bringt x [B, C, H, W] auf height x width.
// Das Resampling ist fest (nicht gelernt), reject lehnt jede Abweichung ab.
func resample(ctx ml.Context, x ml.Tensor, height, width int, policy config.ResamplePolicy) (ml.Tensor, error) {
	shape := x.Shape()
	if shape[2] == height && shape[3] == width {
		return x, nil
	}

	dims := [4]int{shape[0], shape[1], height, width}
	switch policy {
	case config.ResampleNearest:
		return x.Interpolate(ctx, dims, ml.SamplingModeNearest), nil
	case config.ResampleBilinear:
		return x.Interpolate(ctx, dims, ml.SamplingModeBilinear), nil
	case config.ResampleReject:
		return nil, errtypes.ShapeMismatch("attnembed.resample", "student %dx%d does not match teacher %dx%d (resample_policy %s)",
			shape[2], shape[3], height, width, policy)
	default:
		return nil, errtypes.InvalidConfiguration("attnembed.resample", "resample_policy", "unknown value %q", policy)
	}
}
