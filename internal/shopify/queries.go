package shopify

import "fmt"

const connectionPageSize = 250

const discountFields = `
      title
      status
      summary
      startsAt
      endsAt
      updatedAt
      discountClass`

const basicCustomerGets = `
      customerGets {
        value {
          __typename
          ... on DiscountPercentage { percentage }
          ... on DiscountAmount { amount { amount currencyCode } }
        }
        items {
          __typename
          ... on AllDiscountItems { allItems }
          ... on DiscountProducts {
            products(first: 250) { nodes { id } pageInfo { hasNextPage endCursor } }
            productVariants(first: 250) { nodes { id } pageInfo { hasNextPage endCursor } }
          }
          ... on DiscountCollections {
            collections(first: 250) { nodes { id } pageInfo { hasNextPage endCursor } }
          }
        }
        appliesOnOneTimePurchase
        appliesOnSubscription
      }
      minimumRequirement { __typename }`

var discountNodeQuery = fmt.Sprintf(`query DiscountNode($id: ID!) {
  discountNode(id: $id) {
    id
    discount {
      __typename
      ... on DiscountAutomaticBasic {%[1]s%[2]s
      }
      ... on DiscountCodeBasic {%[1]s%[2]s
        customerSelection { __typename }
        codes(first: 50) { nodes { code } }
      }
      ... on DiscountAutomaticBxgy {%[1]s
      }
      ... on DiscountCodeBxgy {%[1]s
        codes(first: 50) { nodes { code } }
      }
      ... on DiscountAutomaticFreeShipping {%[1]s
      }
      ... on DiscountCodeFreeShipping {%[1]s
        codes(first: 50) { nodes { code } }
      }
      ... on DiscountAutomaticApp {%[1]s
      }
      ... on DiscountCodeApp {%[1]s
        codes(first: 50) { nodes { code } }
      }
    }
  }
}`, discountFields, basicCustomerGets)

// scopePageQuery pages one item-scope connection of a basic discount past the
// first page embedded in discountNodeQuery.
func scopePageQuery(itemsType, connection string) string {
	selection := fmt.Sprintf(`customerGets {
          items {
            ... on %s {
              %s(first: %d, after: $after) { nodes { id } pageInfo { hasNextPage endCursor } }
            }
          }
        }`, itemsType, connection, connectionPageSize)
	return fmt.Sprintf(`query DiscountScopePage($id: ID!, $after: String) {
  discountNode(id: $id) {
    discount {
      ... on DiscountAutomaticBasic { %[1]s }
      ... on DiscountCodeBasic { %[1]s }
    }
  }
}`, selection)
}

const discountIDsQuery = `query DiscountIDs($first: Int!, $after: String) {
  discountNodes(first: $first, after: $after) {
    nodes { id }
    pageInfo { hasNextPage endCursor }
  }
}`

const collectionProductsQuery = `query CollectionProducts($id: ID!, $first: Int!, $after: String) {
  collection(id: $id) {
    id
    title
    products(first: $first, after: $after) {
      nodes { id }
      pageInfo { hasNextPage endCursor }
    }
  }
}`

const variantProductQuery = `query VariantProduct($id: ID!) {
  productVariant(id: $id) {
    id
    product { id }
  }
}`

const productVariantsQuery = `query ProductVariants($id: ID!, $first: Int!, $after: String) {
  product(id: $id) {
    id
    title
    variants(first: $first, after: $after) {
      nodes { id }
      pageInfo { hasNextPage endCursor }
    }
  }
}`
