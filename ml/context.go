// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
//
// Shapes werden wie bei PyTorch von aussen nach innen angegeben ([B, C, H, W]),
// die letzte Dimension liegt zusammenhaengend im Speicher.
package ml

// Context represents an execution context for tensor operations.
type Context interface {
	Zeros(dtype DType, shape ...int) Tensor
	FromFloats(s []float32, shape ...int) Tensor

	// Arange creates a 1D tensor with values within an interval [start, stop) increased by step.
	Arange(start, stop, step float32, dtype DType) Tensor

	Close()
}

// Tensor represents a multi-dimensional array with various operations.
//
// Operations never modify their receiver or arguments; every result is a
// new tensor. Shape violations inside an operation are programming errors
// and panic, callers validate user-supplied shapes beforehand.
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType

	// Floats returns a copy of the elements in row-major order.
	Floats() []float32

	// Add, Sub, Mul and Div broadcast t2 against t using numpy rules.
	Add(ctx Context, t2 Tensor) Tensor
	Sub(ctx Context, t2 Tensor) Tensor
	Mul(ctx Context, t2 Tensor) Tensor
	Div(ctx Context, t2 Tensor) Tensor

	// Mulmat multiplies t [..., N, K] with t2 [..., M, K] and returns
	// [..., M, N], i.e. t2 @ tᵀ. A 2D t is shared across all batches of t2.
	Mulmat(ctx Context, t2 Tensor) Tensor

	// Softmax, LayerNorm, SumRows, Mean and Variance work on the last dimension.
	Softmax(ctx Context) Tensor
	LayerNorm(ctx Context, weight, bias Tensor, eps float32) Tensor
	Scale(ctx Context, s float64) Tensor
	SumRows(ctx Context) Tensor
	Mean(ctx Context) Tensor
	Variance(ctx Context) Tensor

	GELU(ctx Context) Tensor
	Sqr(ctx Context) Tensor
	Sqrt(ctx Context) Tensor

	Reshape(ctx Context, shape ...int) Tensor
	Permute(ctx Context, shape ...int) Tensor
	Duplicate(ctx Context) Tensor

	// Roll shifts elements cyclically by shift along dim, like torch.roll.
	Roll(ctx Context, dim, shift int) Tensor

	// Interpolate resizes a [B, C, H, W] tensor to dims.
	Interpolate(ctx Context, dims [4]int, samplingMode SamplingMode) Tensor
}
