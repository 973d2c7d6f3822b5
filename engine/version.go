package engine

// Version is reported in the default User-Agent header.
const Version = "0.3.1"
