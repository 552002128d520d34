// Package backend registriert alle verfuegbaren Tensor-Backends per Blank-Import.
package backend

import (
	_ "github.com/7blacky7/attndistill/ml/backend/cpu"
)
