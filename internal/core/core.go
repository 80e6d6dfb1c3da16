/*
Core implements the execution core executor.

# Module
  - event bus: receives broker events on any goroutine and hands them to a single dispatcher
  - order managers: one per symbol, reconcile desired orders with the broker
  - position book: virtual positions projected from submissions and corrected by events
  - margin model: collateral and liquidation risk from the broker's holdings

# Source
 1. order, trade and account events from a brokerage event source
 2. submissions and amendments from the strategy layer
 3. a periodic manage tick

# Produce
  - orders and cancels to the brokerage
  - a Report per manage tick carrying the risk verdict

# Sharded
  - symbol
*/
package core
