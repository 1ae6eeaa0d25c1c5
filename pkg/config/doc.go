/*
Package config resolves glotta's runtime configuration.

Resolution order is defaults ← environment ← command-line flags: Load()
applies environment variables over Default(), and cmd/glotta binds cobra
flags on top of the loaded values.

Durations accept Go duration strings ("10s", "500ms") or bare integers
interpreted as seconds, so MAX_PROCESSING_TIME=600 and
MAX_PROCESSING_TIME=10m are equivalent.

See the Config struct for the full variable list; Validate() runs as part
of Load() and rejects configurations the fabric cannot run with (inverted
worker bounds, zero intervals).
*/
package config
