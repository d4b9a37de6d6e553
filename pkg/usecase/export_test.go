package usecase

// ParseGCSPath is exported for testing
var ParseGCSPath = parseGCSPath
