// tensor_matrix.go - Matrix-Operationen
// Enthaelt: Mulmat (gebatchtes SGEMM ueber gonum/blas32)

package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/7blacky7/attndistill/ml"
)

// Mulmat berechnet t2 @ tᵀ fuer t [..., N, K] und t2 [..., M, K]
func (t *Tensor) Mulmat(ctx ml.Context, t2 ml.Tensor) ml.Tensor {
	b := cast(t2)
	if len(t.shape) < 2 || len(b.shape) < 2 {
		panic(fmt.Errorf("cpu: mulmat needs rank >= 2, got %v and %v", t.shape, b.shape))
	}

	n, k := t.shape[len(t.shape)-2], t.shape[len(t.shape)-1]
	m := b.shape[len(b.shape)-2]
	if b.shape[len(b.shape)-1] != k {
		panic(fmt.Errorf("cpu: mulmat inner dimension mismatch %v and %v", t.shape, b.shape))
	}

	outShape := append(b.Shape()[:len(b.shape)-1], n)

	// Gewichtsmatrix wird ueber alle Batches von t2 geteilt: ein einziger GEMM-Aufruf
	if len(t.shape) == 2 {
		rows := len(b.data) / k
		out := newTensor(outShape...)
		parallel(ctx, rows, func(lo, hi int) {
			gemm(b.data[lo*k:hi*k], hi-lo, t.data, n, k, out.data[lo*n:hi*n])
		})
		return out
	}

	batchA := t.shape[:len(t.shape)-2]
	batchB := b.shape[:len(b.shape)-2]
	if numel(batchA) != numel(batchB) || len(batchA) != len(batchB) {
		panic(fmt.Errorf("cpu: mulmat batch mismatch %v and %v", t.shape, b.shape))
	}
	for i := range batchA {
		if batchA[i] != batchB[i] {
			panic(fmt.Errorf("cpu: mulmat batch mismatch %v and %v", t.shape, b.shape))
		}
	}

	batches := numel(batchA)
	out := newTensor(outShape...)
	parallel(ctx, batches, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			gemm(b.data[i*m*k:(i+1)*m*k], m, t.data[i*n*k:(i+1)*n*k], n, k, out.data[i*m*n:(i+1)*m*n])
		}
	})
	return out
}

// gemm berechnet c[m, n] = a[m, k] @ w[n, k]ᵀ
func gemm(a []float32, m int, w []float32, n, k int, c []float32) {
	if m == 0 {
		return
	}

	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: n, Cols: k, Stride: k, Data: w},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c},
	)
}
