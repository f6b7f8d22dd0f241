// Package cchalf computes the resolution-binned half-dataset correlation
// coefficient CC1/2 of merged diffraction intensities, and the
// leave-one-batch-out change ΔCC1/2 used to spot outlier batches.
//
// Per reflection the package keeps the sufficient statistics (n, Σx, Σx²).
// Within a resolution bin of k reflections with means mᵢ and unbiased
// variances vᵢ:
//
//	σ_E   = (1/k) Σ vᵢ
//	σ_Y   = 1/(k−1) Σ (mᵢ − m̄)²
//	CC1/2 = (σ_Y − σ_E/2) / (σ_Y + σ_E/2)
//
// Bins are combined by a k-weighted mean. Reflections with fewer than two
// observations carry no variance and are left out of every pass; a bin
// left with fewer than two reflections is an error.
//
// The jackknife pass for batch b subtracts b's contribution from the cached
// sums into a fresh per-pass structure, so passes are independent and run
// concurrently.
package cchalf
