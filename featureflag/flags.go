package featureflag

type Flag string

const (
	// Classifies the grid cells with a worker per z-slab.
	FlagParallelClassification Flag = "PARALLEL_CLASSIFICATION"

	// Fails a bake that leaves interior cells without a direction.
	FlagFailOnUnreachableInterior Flag = "FAIL_ON_UNREACHABLE_INTERIOR"

	// Skips the object store upload even when a bucket is configured.
	FlagDisableObjectUpload Flag = "DISABLE_OBJECT_UPLOAD"
)
