package utils

// VERIFYTOL is the default absolute/relative tolerance for field comparisons.
const VERIFYTOL = 1.e-10
