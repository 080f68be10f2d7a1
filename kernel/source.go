package kernel

import (
	"fmt"
)

// Name is the entry point of the OCCA kernel
const Name = "vectorAdd"

// Source returns the OCCA kernel for op. signature is the parameter list
// produced by the runner for a configuration binding A, B and C in that
// order. One @outer iteration per partition, one @inner lane per element;
// lanes past K[part] are idle so the trailing partition never writes past N.
func Source(op Op, signature string) string {
	body := "C[i] = C[i] + B[i];"
	if op == Sum {
		body = "C[i] = A[i] + B[i];"
	}
	return fmt.Sprintf(`
@kernel void %s(
	%s
) {
	for (int part = 0; part < NPART; ++part; @outer) {
		const elem_t* A = A_PART(part);
		const elem_t* B = B_PART(part);
		elem_t* C = C_PART(part);

		for (int i = 0; i < KpartMax; ++i; @inner) {
			if (i < K[part]) {
				%s
			}
		}
	}
}`, Name, signature, body)
}
